// Package services implements the driving ports: crawling a sitemap,
// indexing stored pages, answering questions over the index, reporting
// store health, resolving settings and scheduling reindex runs.
//
// Services depend only on domain types and driven ports; adapters are
// injected by the caller.
package services
