// Package storage persists versioned entities as YAML files inside the git
// working tree.
//
// Every entity type gets an EntityStorage. Flat entities (posts, users,
// options, ...) are stored one file per vpId:
//
//	posts/5B0E4C6D8F3A4E1B9C2D7A6F0E1B3C4D.yml
//
// Meta entities (postmeta, termmeta, ...) have no file of their own. They
// are nested inside their owner's file under "meta", keyed by
// "<meta key>#<vpId>", so a meta row can only be saved once its owner exists
// in storage. The owner does not need to be synchronized into the database.
//
// All storages work on an afero.Fs so tests can run against MemMapFs.
//
// # Usage
//
//	factory := storage.NewFactory(afero.NewOsFs(), "/srv/site/vpdb", schema.Default())
//	posts, _ := factory.Storage("post")
//	for entity, err := range posts.All() {
//	    ...
//	}
package storage
