package protocol

import "hash/crc32"

// PayloadChecksum computes the tamper-evidence checksum over raw payload
// bytes. CRC32 keeps it cheap to recompute client-side; it is explicitly not
// a cryptographic guarantee.
func PayloadChecksum(payload []byte) uint32 {
	if len(payload) == 0 {
		return 0
	}
	return crc32.ChecksumIEEE(payload)
}

// VerifyChecksum recomputes the payload checksum and compares it against the
// envelope field. A zero checksum on the envelope means "not supplied" and
// always verifies.
func VerifyChecksum(env Envelope) bool {
	if env.Checksum == 0 {
		return true
	}
	return PayloadChecksum(env.Payload) == env.Checksum
}
