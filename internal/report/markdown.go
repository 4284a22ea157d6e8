package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/mediawatch/internal/aggregate"
)

var md = goldmark.New()

var (
	mdEscaper = strings.NewReplacer(
		`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
		"<", `\<`, ">", `\>`, "#", `\#`, "|", `\|`, "&", `\&`,
	)
	linkEscaper = strings.NewReplacer("<", "%3C", ">", "%3E", " ", "%20")
)

// escape neutralizes Markdown syntax in feed-supplied text.
func escape(s string) string {
	return mdEscaper.Replace(s)
}

func escapeJoin(items []string) string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = escape(s)
	}
	return strings.Join(out, ", ")
}

// RenderMarkdown builds the keyword analysis document.
func RenderMarkdown(rep *aggregate.Report, meta Meta) string {
	lim := meta.Limits
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# Media Coverage Analysis - Sensitive Content Monitoring")
	line("")
	line("*Generated: %s*", meta.GeneratedAt.Format("2006-01-02 15:04:05"))
	if meta.RunID != "" {
		line("*Run: %s*", meta.RunID)
	}
	line("")
	line("**Total keywords monitored:** %d", rep.Vocabulary().UniqueLen())
	if meta.RosterSize > 0 {
		line("**Total contacts in roster:** %d", meta.RosterSize)
	}
	if from, to, ok := rep.Window(); ok {
		line("**Coverage window:** %s to %s", from.Format(aggregate.DateLayout), to.Format(aggregate.DateLayout))
	}

	line("")
	line("## Executive Summary")
	line("- Total articles found: %d", rep.TotalArticles())
	line("- Media outlets searched: %d", meta.SourcesSearched)
	line("- Keywords tracked: %d", rep.Vocabulary().UniqueLen())
	line("- Contact mentions found: %d", rep.TotalEntityMentions())

	line("")
	line("## Coverage Analysis by Keyword")
	top := rep.TopTerms(lim.TopTerms)
	if len(top.Items) > 0 {
		line("")
		line("### Most Frequently Found Keywords")
		for _, ts := range top.Items {
			line("")
			line("**%s**", escape(ts.Term))
			line("- Articles found: %d", ts.Count)
			line("- Media outlets covering: %d", ts.Sources.Len())
			line("- Outlets: %s", escapeJoin(rep.SourceNames(ts.Sources.Values())))
		}
		if top.Overflow > 0 {
			line("")
			line("*... and %d more keywords with matches*", top.Overflow)
		}
	}

	if notFound := rep.NotFound(); len(notFound) > 0 {
		page := aggregate.Paginate(notFound, lim.NotFound)
		line("")
		line("### Keywords Not Found in Recent Coverage (%d total)", len(notFound))
		line("")
		line("%s", escapeJoin(page.Items))
		if page.Overflow > 0 {
			line("")
			line("... and %d more", page.Overflow)
		}
	}

	line("")
	line("## Coverage by Media Outlet")
	byID := make(map[string][]int)
	results := rep.Results()
	for i, res := range results {
		byID[res.Item.SourceID] = append(byID[res.Item.SourceID], i)
	}
	for _, src := range rep.Sources() {
		line("")
		line("### %s", escape(src.Name))
		line("*%d articles found*", src.Count)
		line("")
		page := aggregate.Paginate(byID[src.SourceID], lim.ArticlesPerSource)
		for _, i := range page.Items {
			res := results[i]
			line("**%s**", escape(res.Item.Title))
			line("- Published: %s", escape(res.Item.PublishedRaw))
			line("- Keywords: %s", escapeJoin(res.MatchedTerms))
			if res.HasEntityMention() {
				line("- Contacts mentioned: %s", escapeJoin(entityNames(res)))
			}
			if res.Item.Link != "" {
				line("- [Link](<%s>)", linkEscaper.Replace(res.Item.Link))
			}
			line("")
		}
		if page.Overflow > 0 {
			line("*... and %d more articles*", page.Overflow)
		}
	}

	if entities := rep.TopEntities(0); len(entities.Items) > 0 {
		line("")
		line("## Contact Media Mentions")
		line("")
		line("*Contacts from the roster mentioned in media coverage:*")
		for _, es := range entities.Items {
			line("")
			line("### %s", escape(es.DisplayName))
			line("*Mentioned in %d articles*", es.Count())
			line("")
			page := aggregate.Paginate(es.Mentions, lim.MentionsPerEntity)
			for _, m := range page.Items {
				line("- **%s** (%s)", escape(m.Item.Title), escape(rep.SourceName(m.Item.SourceID)))
			}
			if page.Overflow > 0 {
				line("- *... and %d more mentions*", page.Overflow)
			}
		}
	}

	return b.String()
}

// WriteMarkdown writes the keyword analysis document.
func WriteMarkdown(w io.Writer, rep *aggregate.Report, meta Meta) error {
	_, err := io.WriteString(w, RenderMarkdown(rep, meta))
	return err
}

// RenderHTMLFragment converts the Markdown report to an HTML fragment.
func RenderHTMLFragment(rep *aggregate.Report, meta Meta) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(rep, meta)), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// WriteHTML writes the report as a standalone HTML page.
func WriteHTML(w io.Writer, rep *aggregate.Report, meta Meta) error {
	body, err := RenderHTMLFragment(rep, meta)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Media Coverage Analysis</title>
</head>
<body>
%s</body>
</html>
`, body)
	return err
}
