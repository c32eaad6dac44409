package sqlanalyzer

import (
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// walk visits every *pg_query.Node reachable from msg, including msg
// itself when it is one. The parse tree pg_query_go returns is a
// protobuf message with one oneof-typed Node field per AST node kind, so
// a generic reflection walk finds every RangeVar and CommonTableExpr
// without hand-enumerating the ~300 node variants the grammar defines.
func walk(msg proto.Message, visit func(*pg_query.Node)) {
	if msg == nil {
		return
	}
	visitIfNode(msg, visit)
	walkMessage(msg.ProtoReflect(), visit)
}

func visitIfNode(msg proto.Message, visit func(*pg_query.Node)) {
	if n, ok := msg.(*pg_query.Node); ok && n != nil {
		visit(n)
	}
}

func walkMessage(m protoreflect.Message, visit func(*pg_query.Node)) {
	if !m.IsValid() {
		return
	}
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsList():
			list := v.List()
			for i := 0; i < list.Len(); i++ {
				walkField(fd, list.Get(i), visit)
			}
		case fd.IsMap():
			v.Map().Range(func(_ protoreflect.MapKey, mv protoreflect.Value) bool {
				walkField(fd, mv, visit)
				return true
			})
		default:
			walkField(fd, v, visit)
		}
		return true
	})
}

func walkField(fd protoreflect.FieldDescriptor, v protoreflect.Value, visit func(*pg_query.Node)) {
	if fd.Kind() != protoreflect.MessageKind && fd.Kind() != protoreflect.GroupKind {
		return
	}
	msg := v.Message().Interface()
	visitIfNode(msg, visit)
	walkMessage(v.Message(), visit)
}
