// Package html provides an Extractor for crawled HTML pages.
// It selects the page's main content region, drops navigation and
// boilerplate, and joins the remaining text blocks into paragraphs.
package html
