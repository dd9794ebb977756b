package document

import (
	"encoding/xml"
	"errors"
	"html"
	"strings"
)

// RSS 2.0 structures
type rss2Feed struct {
	XMLName xml.Name    `xml:"rss"`
	Channel rss2Channel `xml:"channel"`
}

type rss2Channel struct {
	Title       string     `xml:"title"`
	Link        string     `xml:"link"`
	Description string     `xml:"description"`
	Items       []rss2Item `xml:"item"`
}

type rss2Item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Content     string `xml:"encoded"`
}

// Atom structures
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Links   []atomLink `xml:"link"`
	Content string     `xml:"content"`
	Summary string     `xml:"summary"`
}

// feedEntry is the format-neutral view of one RSS item or Atom entry.
type feedEntry struct {
	Title   string
	URL     string
	Content string
}

// FeedText renders an RSS 2.0 or Atom feed as text: the feed title, then a
// block per entry holding its title, link and content text.
func FeedText(data []byte) (string, error) {
	title, link, entries, err := parseFeed(data)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(title)
	if link != "" {
		b.WriteString("\n" + link)
	}
	for _, e := range entries {
		b.WriteString("\n\n" + e.Title)
		if e.URL != "" {
			b.WriteString("\n" + e.URL)
		}
		if e.Content == "" {
			continue
		}
		// Feed content is usually escaped HTML.
		text, err := HTMLText(html.UnescapeString(e.Content))
		if err != nil {
			text = e.Content
		}
		if text != "" {
			b.WriteString("\n" + text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func parseFeed(data []byte) (string, string, []feedEntry, error) {
	// Try RSS 2.0 first
	var rss rss2Feed
	if err := xml.Unmarshal(data, &rss); err == nil && rss.Channel.Title != "" {
		entries := make([]feedEntry, 0, len(rss.Channel.Items))
		for _, item := range rss.Channel.Items {
			content := item.Content
			if content == "" {
				content = item.Description
			}
			entries = append(entries, feedEntry{Title: item.Title, URL: item.Link, Content: content})
		}
		return rss.Channel.Title, rss.Channel.Link, entries, nil
	}

	// Try Atom
	var atom atomFeed
	if err := xml.Unmarshal(data, &atom); err == nil && atom.Title != "" {
		entries := make([]feedEntry, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			content := entry.Content
			if content == "" {
				content = entry.Summary
			}
			entries = append(entries, feedEntry{Title: entry.Title, URL: alternateLink(entry.Links), Content: content})
		}
		return atom.Title, strings.TrimSuffix(alternateLink(atom.Links), "/"), entries, nil
	}

	return "", "", nil, errors.New("unable to parse feed as RSS or Atom")
}

// alternateLink prefers the alternate link, falling back to the first.
func alternateLink(links []atomLink) string {
	for _, link := range links {
		if link.Rel == "alternate" || link.Rel == "" {
			return link.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}
