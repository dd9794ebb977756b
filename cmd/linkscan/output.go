package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/daniel-butler/linkscan/pkg/config"
	"github.com/daniel-butler/linkscan/pkg/extractor"
	"github.com/daniel-butler/linkscan/pkg/report"
	"github.com/daniel-butler/linkscan/pkg/store"
)

// printLinks lists links grouped by source file. When bookmarked is set,
// each link shows its ID and bookmarked links are starred.
func printLinks(links []extractor.Link, bookmarked func(id string) bool) {
	if len(links) == 0 {
		fmt.Println("No links found")
		return
	}

	for _, g := range report.GroupBySource(links) {
		fmt.Printf("%s\n", g.SourceFile)
		for i, l := range g.Links {
			if bookmarked == nil {
				fmt.Printf("%2d. [%s] %s\n    %s\n", i+1, l.Type, l.LinkText, l.URL)
			} else {
				id := report.LinkID(l)
				star := "☆"
				if bookmarked(id) {
					star = "★"
				}
				fmt.Printf("%2d. %s [%s] %s  (%s)\n    %s\n", i+1, star, l.Type, l.LinkText, id, l.URL)
			}
			if l.Context != "" {
				fmt.Printf("    %s\n", l.Context)
			}
		}
		fmt.Println()
	}
}

func printScan(s store.Scan) {
	fmt.Printf("%s  %s (%s)\n    %s, added %s\n",
		s.ID, s.SourceFile, s.Format,
		linkCount(s.LinkCount), humanize.Time(s.CreatedAt))
}

func linkCount(n int) string {
	if n == 1 {
		return "1 link"
	}
	return humanize.Comma(int64(n)) + " links"
}

func printTypeCounts(counts map[extractor.Type]int) {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	fmt.Println("Links by type:")
	for _, t := range types {
		fmt.Printf("  %-9s %s\n", t, humanize.Comma(int64(counts[extractor.Type(t)])))
	}
}

func printConfig(c *config.Config) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
