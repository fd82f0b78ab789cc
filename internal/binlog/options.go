package binlog

// DefaultMaxRecordBytes bounds a single record payload.
const DefaultMaxRecordBytes = 16 << 20

type options struct {
	registry       *Registry
	version        uint64
	maxRecordBytes int
}

// Option configures a Reader or Writer.
type Option func(*options)

// WithRegistry sets the kind registry. Defaults to NewRegistry().
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithVersion sets the schema version a Writer emits. Readers ignore it.
func WithVersion(v uint64) Option {
	return func(o *options) { o.version = v }
}

// WithMaxRecordBytes bounds record payloads. Non-positive values keep the default.
func WithMaxRecordBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecordBytes = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{version: CurrentVersion, maxRecordBytes: DefaultMaxRecordBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	return o
}
