// Package driven lists what the quire services need from the outside world:
// fetching and storing pages, turning pages into chunks, embedding, vector
// storage, generation, prompts and settings.
//
// Adapters under internal/adapters/driven satisfy these interfaces. This
// package imports nothing from internal/ except domain.
package driven
