package app

import (
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/buffer"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// snapshotBody is the JSON document stored after the snapshot header.
//
//	{"streams":[{"name":"dice","bits":64,"seed":7,"position":3}]}
type snapshotBody struct {
	Streams []Stream
}

var (
	_ easyjson.Marshaler   = (*Stream)(nil)
	_ easyjson.Unmarshaler = (*Stream)(nil)
	_ easyjson.Marshaler   = (*snapshotBody)(nil)
	_ easyjson.Unmarshaler = (*snapshotBody)(nil)
)

func (s *Stream) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"name":`)
	out.String(s.Name)
	out.RawString(`,"bits":`)
	out.Int(s.Bits)
	out.RawString(`,"seed":`)
	out.Uint64(s.Seed)
	out.RawString(`,"position":`)
	out.Uint64(s.Position)
	out.RawByte('}')
}

func (s *Stream) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "name":
			s.Name = in.String()
		case "bits":
			s.Bits = in.Int()
		case "seed":
			s.Seed = in.Uint64()
		case "position":
			s.Position = in.Uint64()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func (b *snapshotBody) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"streams":[`)
	for i := range b.Streams {
		if i > 0 {
			out.RawByte(',')
		}
		b.Streams[i].MarshalEasyJSON(out)
	}
	out.RawString(`]}`)
}

func (b *snapshotBody) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "streams":
			in.Delim('[')
			b.Streams = b.Streams[:0]
			for !in.IsDelim(']') {
				var s Stream
				s.UnmarshalEasyJSON(in)
				b.Streams = append(b.Streams, s)
				in.WantComma()
			}
			in.Delim(']')
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func (b *snapshotBody) marshal(into []byte) ([]byte, error) {
	writer := jwriter.Writer{
		Buffer: buffer.Buffer{
			Buf: into,
		},
	}
	b.MarshalEasyJSON(&writer)
	return writer.BuildBytes()
}

func (b *snapshotBody) unmarshal(data []byte) error {
	lexer := jlexer.Lexer{
		Data:              data,
		UseMultipleErrors: false,
	}
	b.UnmarshalEasyJSON(&lexer)
	return lexer.Error()
}
