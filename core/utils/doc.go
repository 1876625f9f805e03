// Package utils converts values read from the database into the textual
// form entity files store.
package utils
