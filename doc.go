/*
Package structwire converts schema-described structs between wire formats by
way of a single stream of traversal events.

Struct types, their fields and enums live in a meta.Registry. Every parser
turns bytes into calls on a Visitor, and every serializer is a Visitor that
turns those calls back into bytes. Anything in between is a decorator that
embeds Forwarder and rewrites the stream.

We implement:

1. Parsers and serializers for proto (protobuf-like binary), JSON, Qt
(big-endian positional binary) and MessagePack. Each is available as a Format
through FormatByName.

2. Go structs on either side of the stream: StructWalker emits a Go value and
Materializer fills one in. Marshal and Unmarshal combine them with a Format.

3. An in-memory Variant tree, built by VariantBuilder and walked by
VariantWalker.

4. Decorators: DefaultValues fills in fields a producer skipped, AbortAndIndex
applies index and abort field semantics, InOrder sorts keyed input into
declaration order.

5. Store, which keeps encoded structs in bbolt (or in memory) by type and key,
and SaveSnapshot/LoadSnapshot on top of persist.File.

# Event stream

A traversal always begins with StartStruct and ends with Finished. In between,
a struct field produces EnterStruct ... ExitStruct, or EnterStructNull when
absent. An array of structs produces EnterArrayStruct, then one
EnterStruct/ExitStruct pair per element with the element field f.Elem(), then
ExitArrayStruct. Everything else is EnterValue. A parser that fails calls
NotifyError once and then Finished.

Values passed to EnterValue may borrow the parser's input. A visitor that keeps
one past the call must Clone it.

# Binary encoding

**Proto.** Each struct body is prefixed by its size. The serializer reserves
a window for the size before the body is written and fills it in on exit. When
the final varint is shorter than the window, the gap is taken up by a dummy
field 2047 so that nothing already written has to move. Bodies of at most 32
bytes that did not cross a block boundary are moved back to close the gap
instead.

**Qt.** Fields are written in declaration order with no tags. Integers are
big-endian, strings are UTF-16BE prefixed with their byte length, and
0xFFFFFFFF marks a null string or byte array.

**Stored record** (Store):
1. Flags (uvarint), holding the compression method.
2. Fingerprint of the struct type (8 bytes, big-endian).
3. Payload size (uvarint).
4. Payload, encoded with the store's Format, possibly compressed.
5. xxhash64 of everything above (8 bytes, big-endian).

A record whose fingerprint no longer matches its type is still decoded, and
Get reports ErrSchemaChanged alongside the result.
*/
package structwire
