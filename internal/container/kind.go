package container

// Kind identifies the element type of a dataset.
type Kind uint8

const (
	Float64 Kind = iota + 1
	Int32
	Int64
	String // fixed-length byte string; Dims[0] is the declared length
	Tally  // compound {sum float64, sum_sq float64}
	Opaque // raw records; shape carries the record geometry
)

// ElemSize returns the on-disk size of one element in bytes.
func (k Kind) ElemSize() int64 {
	switch k {
	case Float64, Int64:
		return 8
	case Int32:
		return 4
	case String, Opaque:
		return 1
	case Tally:
		return 16
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case String:
		return "string"
	case Tally:
		return "tally"
	case Opaque:
		return "opaque"
	default:
		return "unknown"
	}
}
