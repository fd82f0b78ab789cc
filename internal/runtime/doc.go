// Package runtime wires storage, configuration, the codec registry and
// logging into a single buildlog node.
//
//	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer rt.Close()
//	meta, _ := rt.EnsureProject("compiler")
//	l, _ := rt.OpenLog(meta.Name, rt.NewBuildID())
//
// RunRetention applies per-project retention in the background.
package runtime
