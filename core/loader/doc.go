// Package loader mounts features on the HTTP router.
//
// A Feature names itself, says whether it is enabled and registers its
// routes in Load. The Manager keeps features in registration order and
// LoadAll mounts the enabled ones, returning their names. The first Load
// error stops the server from starting.
//
//	mgr := loader.NewManager()
//	mgr.Register(history.NewFeature(service))
//	loaded, err := mgr.LoadAll(app)
package loader
