package source

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/user/centsalert/internal/availability"
)

// Calendar table column layout. The status column signals open spots
// with a booking link rather than text, so its anchor presence decides
// the status wording.
const (
	colType = iota
	colInstitution
	colRegion
	colCity
	colDeadline
	colSpots
	colStatus
	colTestDate
	minCells = colStatus + 1
)

// statusWithLink is what the status column means when it carries a
// booking anchor.
const statusWithLink = "POSTI DISPONIBILI"

// ParseCalendar extracts raw availability rows from the calendar page's
// first table. Rows with too few cells (header rows, separators) are
// ignored.
func ParseCalendar(r io.Reader) ([]availability.RawRow, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	table := findFirst(doc, "table")
	if table == nil {
		return nil, fmt.Errorf("no table found on calendar page")
	}

	var rows []availability.RawRow
	for _, tr := range findAll(table, "tr") {
		cells := findAll(tr, "td")
		if len(cells) < minCells {
			continue
		}

		status := nodeText(cells[colStatus])
		if findFirst(cells[colStatus], "a") != nil {
			status = statusWithLink
		}

		testDate := ""
		if len(cells) > colTestDate {
			testDate = nodeText(cells[colTestDate])
		}

		rows = append(rows, availability.RawRow{
			DeliveryMode: nodeText(cells[colType]),
			Institution:  nodeText(cells[colInstitution]),
			Region:       nodeText(cells[colRegion]),
			City:         nodeText(cells[colCity]),
			Deadline:     nodeText(cells[colDeadline]),
			CapacityText: nodeText(cells[colSpots]),
			StatusText:   status,
			TestDate:     testDate,
		})
	}
	return rows, nil
}

// findFirst returns the first descendant element with the given tag.
func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns all descendant elements with the given tag, in
// document order.
func findAll(n *html.Node, tag string) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			found = append(found, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return found
}

// nodeText collects the trimmed text content of a node's subtree.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
