package packet

import "fmt"

// Client → server opcodes.
const (
	C_HELLO           byte = 0x01 // version(H) operator(S) password(S)
	C_PING            byte = 0x02 // nonce(DU)
	C_STATS           byte = 0x10
	C_SELECT_HANDLE   byte = 0x11 // handle(Q)
	C_SELECT_REGION   byte = 0x12 // minX(F) minY(F) maxX(F) maxY(F)
	C_SELECT_RADIUS   byte = 0x13 // x(F) y(F) radius(F)
	C_LIST_TAG        byte = 0x14 // tag(S)
	C_DUMP            byte = 0x15
	C_PATH            byte = 0x16 // handle(Q)
	C_TOGGLE_CATEGORY byte = 0x20 // category(S) on(C)
	C_CATEGORIES      byte = 0x21
	C_SET_VIEWERS     byte = 0x22 // n(H) then n × x(F) y(F)
	C_QUIT            byte = 0x7F
)

// Server → client opcodes.
const (
	S_HELLO      byte = 0x81 // version(H) tick(Q)
	S_PONG       byte = 0x82 // nonce(DU) tick(Q)
	S_STATS      byte = 0x90
	S_SNAPSHOT   byte = 0x91 // flags(C) body
	S_PATH       byte = 0x92
	S_CATEGORIES byte = 0xA0 // n(C) then n × category(S)
	S_NOTFOUND   byte = 0xE0 // request opcode(C) handle(Q)
	S_ERROR      byte = 0xE1 // request opcode(C) code(C) message(S)
	S_BYE        byte = 0xFF
)

// ProtocolVersion is exchanged in C_HELLO / S_HELLO.
const ProtocolVersion uint16 = 1

// Flags carried in the first byte of an S_SNAPSHOT body.
const (
	FlagZstd byte = 1 << 0
)

// Error codes carried in S_ERROR.
const (
	ErrCodeMalformed byte = 1
	ErrCodeAuth      byte = 2
	ErrCodeVersion   byte = 3
	ErrCodeState     byte = 4
	ErrCodeInternal  byte = 5
)

var opcodeNames = map[byte]string{
	C_HELLO:           "C_HELLO",
	C_PING:            "C_PING",
	C_STATS:           "C_STATS",
	C_SELECT_HANDLE:   "C_SELECT_HANDLE",
	C_SELECT_REGION:   "C_SELECT_REGION",
	C_SELECT_RADIUS:   "C_SELECT_RADIUS",
	C_LIST_TAG:        "C_LIST_TAG",
	C_DUMP:            "C_DUMP",
	C_PATH:            "C_PATH",
	C_TOGGLE_CATEGORY: "C_TOGGLE_CATEGORY",
	C_CATEGORIES:      "C_CATEGORIES",
	C_SET_VIEWERS:     "C_SET_VIEWERS",
	C_QUIT:            "C_QUIT",
	S_HELLO:           "S_HELLO",
	S_PONG:            "S_PONG",
	S_STATS:           "S_STATS",
	S_SNAPSHOT:        "S_SNAPSHOT",
	S_PATH:            "S_PATH",
	S_CATEGORIES:      "S_CATEGORIES",
	S_NOTFOUND:        "S_NOTFOUND",
	S_ERROR:           "S_ERROR",
	S_BYE:             "S_BYE",
}

// OpcodeName returns the constant name for logs, or hex for unknown opcodes.
func OpcodeName(op byte) string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X", op)
}
