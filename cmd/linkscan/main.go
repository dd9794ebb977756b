package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daniel-butler/linkscan/pkg/config"
	"github.com/daniel-butler/linkscan/pkg/export"
	"github.com/daniel-butler/linkscan/pkg/extractor"
	"github.com/daniel-butler/linkscan/pkg/fetcher"
	"github.com/daniel-butler/linkscan/pkg/normalize"
	"github.com/daniel-butler/linkscan/pkg/report"
	"github.com/daniel-butler/linkscan/pkg/scanner"
	"github.com/daniel-butler/linkscan/pkg/server"
	"github.com/daniel-butler/linkscan/pkg/store"
	"github.com/daniel-butler/linkscan/pkg/watch"
)

var Version = "dev"

// Settings shared by all commands, filled by the root command's flags.
var (
	dbPath     string
	configPath string
	verbose    bool
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "linkscan",
		Short: "Find every link in a résumé or document",
		Long: `linkscan extracts links from documents: Markdown links, bare URLs,
email addresses, www. addresses and LinkedIn / GitHub profiles.

Each link is reported with its text, URL, a snippet of surrounding
context and the file it came from. Results can be exported as CSV,
Markdown or JSON and kept in a local history database.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			if dbPath == "" {
				dbPath = cfg.Database
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: ~/.linkscan/linkscan.db)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.linkscan/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(scanCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(domainsCmd())
	root.AddCommand(mentionsCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(clearCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	return root
}

func ensureDB(path string) (*store.Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	return store.Open(path)
}

// newScanner builds a scanner from the loaded config.
func newScanner(keepOverlaps, noHeadings, mentions bool) *scanner.Scanner {
	extractorOpts := cfg.ExtractorOptions()
	if keepOverlaps {
		extractorOpts = append(extractorOpts, extractor.WithOverlapPolicy(extractor.OverlapKeep))
	}

	f := fetcher.New(
		fetcher.WithTimeout(cfg.Fetch.Timeout),
		fetcher.WithAttempts(cfg.Fetch.Attempts),
		fetcher.WithUserAgent(cfg.Fetch.UserAgent),
		fetcher.WithMaxBytes(cfg.Fetch.MaxBytes),
		fetcher.WithLogger(logger),
	)

	return scanner.New(
		scanner.WithWorkers(cfg.Scan.Workers),
		scanner.WithExtractor(extractor.New(extractorOpts...)),
		scanner.WithNormalizeOptions(normalize.Options{PromoteHeadings: cfg.PromoteHeadings() && !noHeadings}),
		scanner.WithFetcher(f),
		scanner.WithMentions(mentions || cfg.Scan.Mentions),
		scanner.WithLogger(logger),
	)
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <file|url>...",
		Short: "Extract links from documents",
		Long: `Extract links from text, Markdown, HTML, RSS/Atom, PDF and DOCX documents.

Sources may be file paths or http(s) URLs. Word .docx files are read;
legacy .doc files are reported as errors and other files are still
processed.

Every listed link shows its ID. Pass IDs to --bookmark to mark links, and
add --bookmarks-only to list or export just the marked ones.

Example:
  linkscan scan resume.pdf
  linkscan scan cv.md portfolio.html --query github
  linkscan scan resume.pdf --format csv --out resume-links.csv
  linkscan scan https://jane.dev --save
  linkscan scan cv.md --bookmark 1a2b3c4d5e6f7a8b --bookmarks-only -o picks.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")
			save, _ := cmd.Flags().GetBool("save")
			query, _ := cmd.Flags().GetString("query")
			keepOverlaps, _ := cmd.Flags().GetBool("keep-overlaps")
			noHeadings, _ := cmd.Flags().GetBool("no-headings")
			mentions, _ := cmd.Flags().GetBool("mentions")
			bookmarkIDs, _ := cmd.Flags().GetStringSlice("bookmark")
			bookmarksOnly, _ := cmd.Flags().GetBool("bookmarks-only")

			if format == "" {
				format = cfg.Export.Format
			}
			if out != "" && format == "table" {
				format = strings.TrimPrefix(filepath.Ext(out), ".")
			}

			sc := newScanner(keepOverlaps, noHeadings, mentions)
			results, err := sc.ScanSources(cmd.Context(), args)
			if err != nil {
				return err
			}

			var st *store.Store
			if save {
				st, err = ensureDB(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
			}

			collection := report.New()
			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "Warning: failed to process %s: %v\n", res.Name, res.Err)
					continue
				}
				collection.Add(res.Links...)
				if st != nil {
					scan, err := scanner.Save(cmd.Context(), st, res)
					if err != nil {
						return err
					}
					logger.Debug("saved scan", "id", scan.ID, "name", res.Name)
				}
				for _, m := range res.Mentions {
					logger.Debug("mention", "name", m.Text, "type", m.Label, "source", res.Name)
				}
			}
			if failed == len(results) {
				return errors.New("no documents could be processed")
			}

			for _, id := range bookmarkIDs {
				if _, ok := collection.Find(id); !ok {
					fmt.Fprintf(os.Stderr, "Warning: no link with id %s\n", id)
					continue
				}
				if !collection.Bookmarked(id) {
					collection.Toggle(id)
				}
			}

			links := collection.Filter(query)
			if bookmarksOnly {
				links = bookmarkedOnly(collection, links)
			}
			if format == "table" {
				printLinks(links, collection.Bookmarked)
				fmt.Println(collection.Summary(len(links)))
				if n := collection.BookmarkCount(); n > 0 {
					fmt.Printf("%d bookmarked\n", n)
				}
				return nil
			}
			return writeExport(format, out, links, bookmarksOnly)
		},
	}

	cmd.Flags().StringP("format", "f", "", "Output format: table, csv, md, json (default from config)")
	cmd.Flags().StringP("out", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().Bool("save", false, "Save the scan to the history database")
	cmd.Flags().StringP("query", "q", "", "Only show links matching this text")
	cmd.Flags().Bool("keep-overlaps", false, "Report overlapping matches separately (e.g. a URL inside a Markdown link)")
	cmd.Flags().Bool("no-headings", false, "Do not turn all-caps lines into headings before extraction")
	cmd.Flags().Bool("mentions", false, "Also extract people and organisations mentioned")
	cmd.Flags().StringSlice("bookmark", nil, "Bookmark the link with this ID (repeatable)")
	cmd.Flags().Bool("bookmarks-only", false, "Only list or export bookmarked links")

	return cmd
}

// bookmarkedOnly keeps the links of c that are bookmarked, preserving order.
func bookmarkedOnly(c *report.Collection, links []extractor.Link) []extractor.Link {
	var out []extractor.Link
	for _, l := range links {
		if c.Bookmarked(report.LinkID(l)) {
			out = append(out, l)
		}
	}
	return out
}

// createFile opens an export destination.
var createFile = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

func writeExport(formatName, out string, links []extractor.Link, bookmarks bool) error {
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		if bookmarks {
			fmt.Fprintln(os.Stderr, "No bookmarked links to export")
		} else {
			fmt.Fprintln(os.Stderr, "No links to export")
		}
		return nil
	}

	write := export.Write
	if bookmarks {
		write = export.WriteBookmarks
	}
	if out == "" {
		return write(os.Stdout, format, links)
	}

	f, err := createFile(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	if err := write(f, format, links); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d links to %s\n", len(links), out)
	return nil
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search saved links",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("n")
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")

			query := ""
			if len(args) > 0 {
				query = args[0]
			}

			st, err := ensureDB(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			stored, err := st.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}
			links := make([]extractor.Link, 0, len(stored))
			for _, l := range stored {
				links = append(links, l.Link)
			}

			if format == "table" && out == "" {
				printLinks(links, nil)
				return nil
			}
			if format == "table" {
				format = strings.TrimPrefix(filepath.Ext(out), ".")
			}
			return writeExport(format, out, links, false)
		},
	}
	cmd.Flags().IntP("n", "n", 50, "Number of results")
	cmd.Flags().StringP("format", "f", "table", "Output format: table, csv, md, json")
	cmd.Flags().StringP("out", "o", "", "Write the report to a file instead of stdout")
	return cmd
}

// Common domains to filter out when showing rankings
var commonDomains = []string{
	"gmail.com",
	"outlook.com",
	"hotmail.com",
	"yahoo.com",
	"icloud.com",
	"github.com",
	"linkedin.com",
	"twitter.com",
	"x.com",
	"google.com",
	"medium.com",
}

func isCommonDomain(domain string) bool {
	for _, d := range commonDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func domainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Show domains ranked by how many saved links point at them",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("n")
			filterCommon, _ := cmd.Flags().GetBool("filter")

			st, err := ensureDB(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			// Fetch more results if filtering
			fetchLimit := limit
			if filterCommon {
				fetchLimit = limit * 5
			}

			ranked, err := st.TopDomains(cmd.Context(), fetchLimit)
			if err != nil {
				return err
			}
			if len(ranked) == 0 {
				fmt.Println("No saved links yet. Run 'linkscan scan --save' first.")
				return nil
			}

			fmt.Println("Domains ranked by links:")
			shown := 0
			for _, r := range ranked {
				if shown >= limit {
					break
				}
				if filterCommon && isCommonDomain(r.Domain) {
					continue
				}
				shown++
				fmt.Printf("%2d. [%d links] %s\n", shown, r.Count, r.Domain)
			}

			counts, err := st.CountByType(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println()
			printTypeCounts(counts)
			return nil
		},
	}
	cmd.Flags().IntP("n", "n", 20, "Number of results")
	cmd.Flags().Bool("filter", false, "Filter out common domains (gmail, github, linkedin, etc)")
	return cmd
}

func mentionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mentions",
		Short: "Show the most-mentioned people and organisations",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("n")
			entityType, _ := cmd.Flags().GetString("type")

			st, err := ensureDB(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			mentions, err := st.MostMentioned(cmd.Context(), strings.ToUpper(entityType), limit)
			if err != nil {
				return err
			}
			if len(mentions) == 0 {
				fmt.Println("No mentions found. Run 'linkscan scan --save --mentions' first.")
				return nil
			}

			fmt.Println("Most mentioned:")
			for i, m := range mentions {
				fmt.Printf("%2d. [%d scans] %s (%s)\n", i+1, m.MentionCount, m.Name, strings.ToLower(m.EntityType))
			}
			return nil
		},
	}
	cmd.Flags().IntP("n", "n", 30, "Number of results")
	cmd.Flags().String("type", "", "Entity type (PERSON, ORG); all when empty")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [scan-id]",
		Short: "List saved scans, or show the links of one scan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("n")
			del, _ := cmd.Flags().GetBool("delete")

			st, err := ensureDB(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				id := args[0]
				if del {
					if err := st.DeleteScan(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Printf("Deleted scan %s\n", id)
					return nil
				}
				scan, err := st.GetScan(cmd.Context(), id)
				if err != nil {
					return err
				}
				stored, err := st.LinksForScan(cmd.Context(), id)
				if err != nil {
					return err
				}
				printScan(*scan)
				links := make([]extractor.Link, 0, len(stored))
				for _, l := range stored {
					links = append(links, l.Link)
				}
				printLinks(links, nil)
				return nil
			}
			if del {
				return errors.New("--delete needs a scan id")
			}

			scans, err := st.ListScans(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(scans) == 0 {
				fmt.Println("No saved scans yet.")
				return nil
			}
			for _, s := range scans {
				printScan(s)
			}
			return nil
		},
	}
	cmd.Flags().IntP("n", "n", 20, "Number of scans")
	cmd.Flags().Bool("delete", false, "Delete the given scan")
	return cmd
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all saved scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ensureDB(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d saved scans\n", n)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		Long: `Serve the JSON HTTP API.

Endpoints:
  POST /api/v1/extract           upload documents (multipart "file" fields,
                                 or a raw body with ?name=); ?save=true, ?q=
  GET  /api/v1/links?q=&limit=   search saved links
  GET  /api/v1/scans             recent scans
  GET  /api/v1/scans/{id}        one scan with its links
  GET  /api/v1/export.csv?q=     export saved links (also .md and .json)
  GET  /healthz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = cfg.Server.Addr
			}

			st, err := ensureDB(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(
				newScanner(false, false, false),
				st,
				server.WithLogger(logger),
				server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
			)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-scan documents in a directory whenever they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, _ := cmd.Flags().GetBool("initial")
			noSave, _ := cmd.Flags().GetBool("no-save")
			mentions, _ := cmd.Flags().GetBool("mentions")
			bookmarkIDs, _ := cmd.Flags().GetStringSlice("bookmark")
			bookmarksOnly, _ := cmd.Flags().GetBool("bookmarks-only")

			opts := []watch.Option{
				watch.WithDebounce(cfg.Watch.Debounce),
				watch.WithInitialScan(initial),
				watch.WithLogger(logger),
				watch.WithHandler(func(res scanner.Result, scan *store.Scan) {
					fmt.Printf("%s: %d links\n", res.Name, len(res.Links))
				}),
			}
			if !noSave {
				st, err := ensureDB(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
				opts = append(opts, watch.WithRecorder(st))
			}

			w := watch.New(args[0], newScanner(false, false, mentions), opts...)
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().Bool("initial", true, "Scan existing documents on start")
	cmd.Flags().Bool("no-save", false, "Do not save scans to the history database")
	cmd.Flags().Bool("mentions", false, "Also extract people and organisations mentioned")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(cfg)
		},
	}
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			path := configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
			}
			if err := config.Default().Write(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		// config is irrelevant here
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
}
