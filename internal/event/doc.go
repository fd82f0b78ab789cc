// Package event defines the build event model: the base message record, the
// extension capability that lets a producer attach a typed payload to a
// record, the extended message variant, and the placeholder used for record
// kinds a reader does not understand.
//
// Records are plain values. Producers build them with the New* constructors
// and hand them to a binlog.Writer; consumers receive them from a
// binlog.Reader and branch on Kind():
//
//	ev, err := r.Next()
//	switch e := ev.(type) {
//	case *event.ExtendedMessage:
//	    fmt.Println(e.ExtendedType(), e.FormattedMessage())
//	case *event.Message:
//	    fmt.Println(e.FormattedMessage())
//	case *event.Unknown:
//	    // newer producer; keep e.Raw for pass-through
//	}
//
// Message templates are never formatted at construction. Format arguments are
// retained next to the template and applied by FormattedMessage on demand.
package event
