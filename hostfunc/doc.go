// Package hostfunc provides the host function table and the built-in host
// capabilities that scripts may call back into.
//
// Scripts have no implicit access to anything outside the interpreter. A
// capability exists only if the host registers it before the first
// execution:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("greet", func(ctx context.Context, args []value.Value) (value.Value, error) {
//	    name, _ := args[0].AsString()
//	    return value.String("Hello, " + name), nil
//	})
//
// # Built-in Capabilities
//
// Key-value store: shared data explicitly injected by the host, see
// [KVStore]. Each operation is bounded by [KVConfig].
//
//	kv := hostfunc.NewKVStore(hostfunc.DefaultKVConfig())
//	kv.Install(registry)
//
// Logging: [NewLogFunc] routes script messages to the host's zap logger.
package hostfunc
