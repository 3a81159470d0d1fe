package ntp

import "encoding/binary"

const macKeyIDLen = 4

// decodeMAC decodes whatever follows the header and extension fields.
//
//	0 bytes     no MAC
//	1-3 bytes   partial MAC, raw bytes kept in Digest
//	4 bytes     key ID with an empty digest (zero key ID responses)
//	5+ bytes    key ID followed by the digest
func decodeMAC(data []byte) (*MAC, []byte, error) {
	switch {
	case len(data) == 0:
		return nil, data, nil
	case len(data) < macKeyIDLen:
		r := reader{b: data}
		digest := r.take(len(data), "mac")
		return &MAC{Digest: digest, Partial: true}, r.rest(), r.err
	}

	r := reader{b: data}
	keyID := r.u32("mac_key_id")
	digest := r.take(r.remaining(), "mac_digest")
	if r.err != nil {
		return nil, nil, r.err
	}
	return &MAC{KeyID: keyID, Digest: digest}, r.rest(), nil
}

func appendMAC(b []byte, m *MAC) []byte {
	if !m.Partial {
		b = binary.BigEndian.AppendUint32(b, m.KeyID)
	}
	return append(b, m.Digest...)
}
