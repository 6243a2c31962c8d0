// Package file keeps quire's settings and prompts on disk.
//
// ConfigStore reads and writes config.toml. PromptStore serves the built-in
// prompt templates unless a copy under the prompts directory overrides them.
// LoadDotEnv pulls a .env file into the environment so QUIRE_* overrides
// and provider keys can sit beside the binary.
package file
