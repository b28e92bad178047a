package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/56kcloud/mb-client/internal/config"
	"github.com/56kcloud/mb-client/internal/design"
	"github.com/56kcloud/mb-client/internal/engine"
	"github.com/56kcloud/mb-client/internal/events"
	"github.com/56kcloud/mb-client/internal/fileutil"
	"github.com/56kcloud/mb-client/internal/journal"
	"github.com/56kcloud/mb-client/internal/status"
	"github.com/56kcloud/mb-client/internal/tracking"
)

func newDesignCommand(ctx *commandContext) *cobra.Command {
	designCmd := &cobra.Command{
		Use:   "design",
		Short: "Submit and follow book design requests",
	}

	designCmd.AddCommand(newDesignSubmitCommand(ctx))
	designCmd.AddCommand(newDesignOptionsCommand(ctx))
	designCmd.AddCommand(newDesignArtifactCommand(ctx))
	designCmd.AddCommand(newDesignHistoryCommand(ctx))

	return designCmd
}

// propertyFlags binds the design property flags of a command.
type propertyFlags struct {
	title               string
	occasion            string
	style               int
	bookSize            string
	coverType           string
	pageType            string
	imageDensity        string
	imageFilteringLevel string
	embellishmentLevel  string
	textStickerLevel    string
}

func (f *propertyFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.title, "title", "", "Book title")
	flags.StringVar(&f.occasion, "occasion", "", "Occasion ("+strings.Join(design.Occasions, ", ")+")")
	flags.IntVar(&f.style, "style", 0, "Style id")
	flags.StringVar(&f.bookSize, "book-size", "", "Book size ("+strings.Join(design.BookSizes, ", ")+")")
	flags.StringVar(&f.coverType, "cover-type", "", "Cover type ("+strings.Join(design.CoverTypes, ", ")+")")
	flags.StringVar(&f.pageType, "page-type", "", "Page type ("+strings.Join(design.PageTypes, ", ")+")")
	flags.StringVar(&f.imageDensity, "image-density", "", "Image density ("+strings.Join(design.ImageDensities, ", ")+")")
	flags.StringVar(&f.imageFilteringLevel, "image-filtering-level", "", "Image filtering level ("+strings.Join(design.ImageFilteringLevels, ", ")+")")
	flags.StringVar(&f.embellishmentLevel, "embellishment-level", "", "Embellishment level ("+strings.Join(design.EmbellishmentLevels, ", ")+")")
	flags.StringVar(&f.textStickerLevel, "text-sticker-level", "", "Text sticker level ("+strings.Join(design.TextStickerLevels, ", ")+")")
}

// edits returns only the properties whose flags were set.
func (f *propertyFlags) edits(cmd *cobra.Command) design.Edits {
	changed := cmd.Flags().Changed
	str := func(name string, value string) *string {
		if !changed(name) {
			return nil
		}
		return &value
	}
	var edits design.Edits
	edits.Title = str("title", f.title)
	edits.Occasion = str("occasion", f.occasion)
	edits.BookSize = str("book-size", f.bookSize)
	edits.CoverType = str("cover-type", f.coverType)
	edits.PageType = str("page-type", f.pageType)
	edits.ImageDensity = str("image-density", f.imageDensity)
	edits.ImageFilteringLevel = str("image-filtering-level", f.imageFilteringLevel)
	edits.EmbellishmentLevel = str("embellishment-level", f.embellishmentLevel)
	edits.TextStickerLevel = str("text-sticker-level", f.textStickerLevel)
	if changed("style") {
		style := f.style
		edits.Style = &style
	}
	return edits
}

func newDesignSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		props     propertyFlags
		bookID    string
		imageURLs []string
		guid      string
		output    string
		jsonLines bool
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a design request and follow its progress",
		Long: "Creates a book (or reuses --book-id), persists the design request and follows the\n" +
			"worker's progress notifications until the design is ready, fails or stalls.",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			eng, err := ctx.engineClient(cmd)
			if err != nil {
				return err
			}
			logger := ctx.loggerFor(cmd)

			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()
			defer events.Unregister(store.Attach(events.Default(), logger))

			client, err := ctx.designClient(cmd, eng)
			if err != nil {
				return err
			}

			edits := props.edits(cmd)
			var req *design.Request
			if strings.TrimSpace(bookID) != "" {
				req, err = client.OpenRequest(bookID, edits)
			} else {
				req, err = client.CreateRequest(runCtx, edits)
			}
			if err != nil {
				return err
			}
			defer req.Close()

			for i, raw := range imageURLs {
				image := engine.Image{URL: raw, Handle: strconv.Itoa(i + 1), Filename: filepath.Base(raw)}
				if _, err := req.AddImage(runCtx, image); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			var watcher progressWatcher
			if !jsonLines && !plain && isTerminal(out) {
				watcher = newInteractiveWatcher(runCtx, out, req.ParentID())
			} else {
				watcher = newLineWatcher(out, jsonLines)
			}
			defer watcher.detach()

			session, err := req.Submit(runCtx, design.Edits{})
			if err != nil {
				return err
			}
			if strings.TrimSpace(guid) != "" {
				if _, err := req.SetCorrelationID(runCtx, guid); err != nil {
					return err
				}
			}
			if !jsonLines {
				fmt.Fprintf(cmd.ErrOrStderr(), "Submitted design request for book %s\n", req.ParentID())
			}

			if err := watcher.wait(runCtx, session); err != nil {
				return err
			}
			if runCtx.Err() != nil {
				return runCtx.Err()
			}
			return finishDesign(cmd, req, session, output, jsonLines)
		},
	}

	props.register(cmd)
	cmd.Flags().StringVar(&bookID, "book-id", "", "Existing book id (a new book is created when empty)")
	cmd.Flags().StringArrayVar(&imageURLs, "image", nil, "Image URL to attach (repeatable)")
	cmd.Flags().StringVar(&guid, "guid", "", "Correlation id to record on the book")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the galleon to this file once the design is ready")
	cmd.Flags().BoolVar(&jsonLines, "json", false, "Print progress events as JSON lines")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print progress as plain lines even on a terminal")
	return cmd
}

func finishDesign(cmd *cobra.Command, req *design.Request, session *tracking.Session, output string, quiet bool) error {
	outcome, cause := session.Outcome()
	if outcome != tracking.OutcomeCompleted {
		if cause == nil {
			return fmt.Errorf("design %s", outcome)
		}
		return fmt.Errorf("design %s: %w", outcome, cause)
	}
	if strings.TrimSpace(output) == "" {
		return nil
	}
	galleon, err := req.FetchFinalArtifact(cmd.Context())
	if err != nil {
		return err
	}
	if err := writeArtifact(output, galleon); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote galleon to %s\n", output)
	}
	return nil
}

func writeArtifact(path string, galleon engine.Galleon) error {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := fileutil.WriteFileVerified(expanded, galleon, 0o644); err != nil {
		return fmt.Errorf("write galleon: %w", err)
	}
	return nil
}

func newDesignOptionsCommand(ctx *commandContext) *cobra.Command {
	var (
		bookSize       string
		imageCount     int
		filteringLevel string
		catalog        bool
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "options",
		Short: "List the design densities the engine offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if catalog {
				return printCatalog(cmd, asJSON)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if imageCount <= 0 {
				return errors.New("--image-count must be positive")
			}
			if bookSize == "" {
				bookSize = cfg.Design.DefaultBookSize
			}
			if filteringLevel == "" {
				filteringLevel = cfg.Design.DefaultImageFilteringLevel
			}
			eng, err := ctx.engineClient(cmd)
			if err != nil {
				return err
			}
			options, err := eng.GetDesignOptions(cmd.Context(), bookSize, imageCount, filteringLevel)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, options)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDesignOptions(options))
			return nil
		},
	}

	cmd.Flags().StringVar(&bookSize, "book-size", "", "Book size (defaults to design.default_book_size)")
	cmd.Flags().IntVar(&imageCount, "image-count", 0, "Number of images in the book")
	cmd.Flags().StringVar(&filteringLevel, "image-filtering-level", "", "Image filtering level (defaults to design.default_image_filtering_level)")
	cmd.Flags().BoolVar(&catalog, "catalog", false, "Print the allowed design property values instead of querying the engine")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderDesignOptions(options engine.DesignOptions) string {
	densities := make([]string, 0, len(options.Densities))
	for density := range options.Densities {
		densities = append(densities, density)
	}
	slices.SortFunc(densities, func(a, b string) int {
		return densityRank(a) - densityRank(b)
	})

	rows := make([][]string, 0, len(densities))
	for _, density := range densities {
		opt := options.Densities[density]
		rows = append(rows, []string{
			stateLabel(density),
			fmt.Sprintf("%d-%d", opt.MinPageCount, opt.MaxPageCount),
			fmt.Sprintf("%d-%d", opt.MinImageCount, opt.MaxImageCount),
			strconv.FormatFloat(opt.AvgImageCount, 'f', 1, 64),
		})
	}
	return renderTable(densityColumns, rows)
}

func densityRank(density string) int {
	if i := slices.Index(design.ImageDensities, density); i >= 0 {
		return i
	}
	return len(design.ImageDensities)
}

func printCatalog(cmd *cobra.Command, asJSON bool) error {
	entries := design.Catalog()
	if asJSON {
		return writeJSONList(cmd, entries)
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{entry.Property, strings.Join(entry.Values, ", ")})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(catalogColumns, rows))
	return nil
}

func newDesignArtifactCommand(ctx *commandContext) *cobra.Command {
	var (
		bookID string
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Download the galleon of a completed design",
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID = strings.TrimSpace(bookID)
			if bookID == "" {
				return errors.New("--book-id is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !force {
				ready, err := journaledReady(cmd, cfg, bookID)
				if err != nil {
					return err
				}
				if !ready {
					return fmt.Errorf("%w: no ready transition journaled for book %s (use --force to fetch anyway)",
						design.ErrPrematureArtifactAccess, bookID)
				}
			}
			eng, err := ctx.engineClient(cmd)
			if err != nil {
				return err
			}
			galleon, err := eng.RetrieveGalleon(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			if strings.TrimSpace(output) == "" {
				_, err := cmd.OutOrStdout().Write(append(galleon, '\n'))
				return err
			}
			if err := writeArtifact(output, galleon); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote galleon to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&bookID, "book-id", "", "Book id")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the galleon to this file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "Fetch even when no completion was journaled")
	return cmd
}

// journaledReady reports whether the most recent journaled transition of
// bookID is a successful completion.
func journaledReady(cmd *cobra.Command, cfg *config.Config, bookID string) (bool, error) {
	store, err := journal.Open(cfg)
	if err != nil {
		return false, fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()
	entries, err := store.List(cmd.Context(), bookID, 1)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}
	last := status.Message{State: entries[0].State, Slug: entries[0].Slug}
	return last.Completed() && !last.Failed(), nil
}

func newDesignHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		bookID       string
		limit        int
		clearJournal bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled progress transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			bookID = strings.TrimSpace(bookID)
			if clearJournal {
				if bookID == "" {
					return errors.New("--clear requires --book-id")
				}
				removed, err := store.Clear(cmd.Context(), bookID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d transition(s) for book %s\n", removed, bookID)
				return nil
			}

			if bookID == "" {
				summaries, err := store.Requests(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONList(cmd, summaries)
				}
				if len(summaries) == 0 {
					fmt.Fprintln(out, "No design requests journaled")
					return nil
				}
				fmt.Fprintln(out, renderRequestSummaries(summaries))
				return nil
			}

			entries, err := store.List(cmd.Context(), bookID, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSONList(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "No transitions journaled for book %s\n", bookID)
				return nil
			}
			fmt.Fprintln(out, renderEntries(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&bookID, "book-id", "", "Book id (lists all journaled requests when empty)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the most recent transitions")
	cmd.Flags().BoolVar(&clearJournal, "clear", false, "Delete the journal of --book-id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderRequestSummaries(summaries []journal.RequestSummary) string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.RequestID,
			stateLabel(s.LastState),
			s.LastSlug,
			fmt.Sprintf("%d%%", s.LastProgress),
			strconv.Itoa(s.Transitions),
			s.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return renderTable(summaryColumns, rows)
}

func renderEntries(entries []journal.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.Seq, 10),
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(e.SessionID),
			stateLabel(e.State),
			e.Slug,
			fmt.Sprintf("%d%%", e.Progress),
			e.Message,
		})
	}
	return renderTable(entryColumns, rows)
}
