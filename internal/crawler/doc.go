// Package crawler provides the HTTP fetcher and the sitemap URL source
// used by the crawl service.
//
// The fetcher negotiates gzip and brotli encodings and decodes text bodies
// to UTF-8 using the declared or sniffed charset. The sitemap source
// understands both <urlset> and <sitemapindex> documents, including
// gzip-compressed sitemaps, and follows nested indexes to a fixed depth.
package crawler
