package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/lorebook/lorebook/internal/errs"
	"github.com/lorebook/lorebook/internal/models"
	"github.com/lorebook/lorebook/pkg/chat"
	"github.com/lorebook/lorebook/pkg/config"
	"github.com/lorebook/lorebook/pkg/ingest"
	"github.com/lorebook/lorebook/pkg/notebook"
)

type repl struct {
	config       *config.Config
	notebooks    *notebook.Service
	ingestEngine *ingest.Engine
	chatEngine   *chat.Engine

	notebookID string
	detail     models.DetailLevel
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (r *repl) run(ctx context.Context) error {
	color.Cyan("\nChat with your notebooks (type 'help' for commands, 'exit' to quit)")

	if r.notebookID == "" {
		if err := r.pickNotebook(); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"):
			return nil
		case strings.EqualFold(line, "help"):
			r.printHelp()
			continue
		case strings.HasPrefix(line, "/"):
			if err := r.handleCommand(ctx, line); err != nil {
				color.Red("%v", err)
			}
			continue
		}

		history, err := r.notebooks.ChatHistory(r.notebookID)
		if err != nil {
			color.Red("Failed to load chat history: %v", err)
			continue
		}

		spinner := getSpinner(" Thinking...")
		answer, err := r.chatEngine.Chat(ctx, line, chat.Options{
			NotebookID:    r.notebookID,
			TopK:          r.config.Retrieval.TopK,
			UseHyDE:       !*r.config.Retrieval.UseMultiQuery,
			SkipReranking: !*r.config.Retrieval.UseReranking,
			ChatHistory:   history,
			DetailLevel:   r.detail,
		})
		spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v", err)
			continue
		}

		if _, err := r.notebooks.AppendChatMessage(r.notebookID, models.RoleUser, line); err != nil {
			color.Red("Failed to save message: %v", err)
		}
		if _, err := r.notebooks.AppendChatMessage(r.notebookID, models.RoleAssistant, answer); err != nil {
			color.Red("Failed to save message: %v", err)
		}

		assistantPrompt("\nAssistant: %s\n", answer)
	}

	return scanner.Err()
}

// pickNotebook selects the only notebook, or creates a default one when
// none exists yet.
func (r *repl) pickNotebook() error {
	notebooks, err := r.notebooks.ListNotebooks()
	if err != nil {
		return err
	}

	if len(notebooks) == 0 {
		created, err := r.notebooks.CreateNotebook("default", "")
		if err != nil {
			return err
		}
		color.Yellow("Created notebook %s (%s)", created.Name, created.ID)
		r.notebookID = created.ID
		return nil
	}

	r.notebookID = notebooks[0].ID
	color.Yellow("Using notebook %s (%s)", notebooks[0].Name, r.notebookID)
	if len(notebooks) > 1 {
		color.Yellow("Switch with /use <id>; see /notebooks for the full list")
	}
	return nil
}

func (r *repl) printHelp() {
	fmt.Println(`
Commands:
  /notebooks               List notebooks
  /create <name>           Create a notebook and switch to it
  /use <id>                Switch notebooks
  /knowledge               List this notebook's knowledge items
  /add note <text>         Add a note and index it
  /add url <url>           Add a web page and index it
  /add article <url>       Add an article and index it
  /add pdf <path>          Add a PDF file and index it
  /remove <id>             Delete a knowledge item and its vectors
  /reingest                Re-index every item in this notebook
  /detail <level>          Set answer detail (brief|normal|detailed|meticulous)
  /clear                   Clear this notebook's chat history
  exit                     Quit`)
}

func (r *repl) handleCommand(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case "/notebooks":
		return r.listNotebooks()
	case "/create":
		if len(args) == 0 {
			return fmt.Errorf("usage: /create <name>")
		}
		return r.createNotebook(strings.Join(args, " "))
	case "/use":
		if len(args) != 1 {
			return fmt.Errorf("usage: /use <id>")
		}
		return r.useNotebook(args[0])
	case "/knowledge":
		return r.listKnowledge()
	case "/add":
		if len(args) < 2 {
			return fmt.Errorf("usage: /add <note|url|article|pdf> <content>")
		}
		return r.addKnowledge(ctx, args[0], strings.Join(args[1:], " "))
	case "/remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: /remove <id>")
		}
		return r.removeKnowledge(ctx, args[0])
	case "/reingest":
		return r.reingest(ctx)
	case "/detail":
		if len(args) != 1 {
			return fmt.Errorf("usage: /detail <brief|normal|detailed|meticulous>")
		}
		return r.setDetail(args[0])
	case "/clear":
		if err := r.notebooks.ClearChatHistory(r.notebookID); err != nil {
			return err
		}
		color.Green("✓ Chat history cleared")
		return nil
	default:
		return fmt.Errorf("unknown command %s (type 'help')", command)
	}
}

func (r *repl) listNotebooks() error {
	notebooks, err := r.notebooks.ListNotebooks()
	if err != nil {
		return err
	}
	for _, nb := range notebooks {
		marker := " "
		if nb.ID == r.notebookID {
			marker = "*"
		}
		fmt.Printf("%s %s  %s (%d items)\n", marker, nb.ID, nb.Name, len(nb.KnowledgeItems))
	}
	return nil
}

func (r *repl) createNotebook(name string) error {
	created, err := r.notebooks.CreateNotebook(name, "")
	if err != nil {
		return err
	}
	r.notebookID = created.ID
	color.Green("✓ Created and switched to %s (%s)", created.Name, created.ID)
	return nil
}

func (r *repl) useNotebook(id string) error {
	nb, err := r.notebooks.GetNotebook(id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("no notebook %s", id)
		}
		return err
	}
	r.notebookID = nb.ID
	color.Green("✓ Switched to %s", nb.Name)
	return nil
}

func (r *repl) listKnowledge() error {
	items, err := r.notebooks.KnowledgeItems(r.notebookID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No knowledge items yet. Add one with /add.")
		return nil
	}
	for _, item := range items {
		status := color.YellowString("pending")
		if item.Embedded {
			status = color.GreenString("embedded")
		}
		fmt.Printf("%s  [%s] %s  %s\n", item.ID, item.Type, item.Title, status)
	}
	return nil
}

func (r *repl) addKnowledge(ctx context.Context, kind, content string) error {
	input := notebook.AddKnowledgeInput{Type: models.KnowledgeItemType(kind)}

	switch input.Type {
	case models.TypeNote:
		input.Title = truncateTitle(content)
		input.Content = content
	case models.TypeURL, models.TypeArticle:
		input.Title = content
		input.Content = content
	case models.TypePDF:
		input.Title = content
		input.FilePath = content
	default:
		return fmt.Errorf("unsupported knowledge type %q", kind)
	}

	item, err := r.notebooks.AddKnowledgeItem(r.notebookID, input)
	if err != nil {
		return err
	}

	spinner := getSpinner(" Indexing...")
	result, err := r.ingestEngine.Ingest(ctx, r.notebookID, item.ID, *item)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}

	color.Green("✓ Indexed %s into %d chunks", item.Title, result.Chunks)
	return nil
}

func (r *repl) removeKnowledge(ctx context.Context, id string) error {
	if err := r.notebooks.DeleteKnowledgeItem(ctx, r.notebookID, id); err != nil {
		return err
	}
	color.Green("✓ Removed %s", id)
	return nil
}

func (r *repl) reingest(ctx context.Context) error {
	items, err := r.notebooks.KnowledgeItems(r.notebookID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Nothing to reingest.")
		return nil
	}

	// Drive items one at a time so the bar tracks real work; one item's
	// failure never aborts its siblings.
	bar := getProgressBar(len(items), " Reingesting notebook...")
	embedded := 0
	for _, item := range items {
		if _, err := r.ingestEngine.Ingest(ctx, r.notebookID, item.ID, item); err != nil {
			color.Red("\nFailed %s: %v", item.ID, err)
			bar.Add(1)
			continue
		}
		embedded++
		bar.Add(1)
	}
	bar.Finish()

	color.Green("\n✓ Reingested %d of %d items", embedded, len(items))
	return nil
}

func (r *repl) setDetail(level string) error {
	parsed := models.DetailLevel(level)
	switch parsed {
	case models.DetailBrief, models.DetailNormal, models.DetailDetailed, models.DetailMeticulous:
		r.detail = parsed
		color.Green("✓ Detail level set to %s", level)
		return nil
	}
	return fmt.Errorf("unknown detail level %q", level)
}

func truncateTitle(text string) string {
	const max = 60
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
