package distill

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Limits per distilled page. The distillate is deliberately skeletal: enough
// structure for the language model to see what the page says about the brand,
// small enough that a dozen pages fit one prompt.
const (
	maxH2s          = 3
	maxParagraphs   = 3
	maxLists        = 2
	maxListItems    = 5
	minDistillChars = 50
)

// Distiller reduces rendered HTML to a compact structured text form.
type Distiller struct {
	conv *md.Converter
}

func New() *Distiller {
	conv := md.NewConverter("", true, nil)
	return &Distiller{conv: conv}
}

// Page distills one page. Returns "" when the page carries too little text to
// be worth a slot in the corpus.
func (d *Distiller) Page(pageURL, htmlStr string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, noscript, iframe, svg").Remove()

	var b strings.Builder

	if title := clean(doc.Find("title").First().Text()); title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", title)
	}
	if h1 := clean(doc.Find("h1").First().Text()); h1 != "" {
		fmt.Fprintf(&b, "H1: %s\n", h1)
	}

	count := 0
	doc.Find("h2").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if h2 := clean(sel.Text()); h2 != "" {
			fmt.Fprintf(&b, "H2: %s\n", h2)
			count++
		}
		return count < maxH2s
	})

	count = 0
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := d.paragraphText(sel)
		if len(text) >= 40 {
			b.WriteString(text + "\n")
			count++
		}
		return count < maxParagraphs
	})

	count = 0
	doc.Find("ul").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		items := 0
		var list strings.Builder
		sel.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
			if item := clean(li.Text()); item != "" {
				fmt.Fprintf(&list, "- %s\n", item)
				items++
			}
			return items < maxListItems
		})
		if items > 1 {
			b.WriteString(list.String())
			count++
		}
		return count < maxLists
	})

	body := strings.TrimSpace(b.String())
	if len(body) < minDistillChars {
		return ""
	}
	return fmt.Sprintf("=== %s ===\n%s", pageURL, body)
}

// paragraphText renders a paragraph through the markdown converter so inline
// emphasis and link labels survive as readable text.
func (d *Distiller) paragraphText(sel *goquery.Selection) string {
	inner, err := goquery.OuterHtml(sel)
	if err != nil {
		return clean(sel.Text())
	}
	out, err := d.conv.ConvertString(inner)
	if err != nil {
		return clean(sel.Text())
	}
	return clean(out)
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
