// Package furrow is the composition root of the furrow sync engine.
//
// Furrow keeps a local document store in two-way sync with a Git repository
// hosted on GitHub, using only the REST API: no working copy, no git binary.
// Each space is bound to one repository. Documents live under docs/<id>.json
// and the space itself under space.json, one commit per push.
//
// The local store is pluggable. The default adapter keeps one JSON (or YAML)
// file per record on disk and watches it for changes; the sqlite adapter keeps
// everything in a single database file.
//
// Usage:
//
//	svc, store, err := furrow.New(ctx, "./notes", furrow.WithLogger(logger))
//	if err != nil { ... }
//	defer store.Close()
//
//	_ = store.CreateSpace(ctx, core.Space{
//		ID:       "notes",
//		Settings: core.Settings{RepoOwner: "octo", RepoName: "notes"},
//	})
//	_ = svc.SaveDocument(ctx, "notes", "hello", "Hello", `{"text":"hi"}`)
//
//	eng, err := furrow.NewEngine(ctx, store, "notes", furrow.WithToken(token))
//	res, err := eng.Push(ctx)
//	report, err := eng.Pull(ctx)
//
// Push is incremental: only documents whose version changed since the last
// synced snapshot are uploaded. Pull applies the remote head and reports
// per-document failures without aborting. Both are serialized per space;
// a second concurrent call fails fast with core.ErrSyncInProgress.
package furrow
