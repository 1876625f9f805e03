// Package config loads the settings of content-history.
//
// LoadConfig layers, from weakest to strongest: the `default:` tags of the
// section structs, an optional config.yaml in the given directory, a .env
// file and the process environment. Environment keys are the upper-cased
// path with dots replaced by underscores, e.g. DATABASE_TABLE_PREFIX or
// HISTORY_IGNORED_ACTIONS.
//
// Sections map to the packages that consume them: server, log, database,
// repository (git), site (replacer), schema and history.
package config
