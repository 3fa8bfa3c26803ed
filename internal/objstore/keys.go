package objstore

// Keyspace (byte-wise, lexicographically sortable):
// - o/{id}                      object info (JSON)
// - e/{id}\x00{el}              element info (JSON)
// - d/{id}\x00{el}              element bytes
// - a/{id}\x00{el}\x00{key}     attribute value and timestamp (JSON); el is
//                               empty for object-level attributes

const sep = 0x00

var (
	objPrefix  = []byte("o/")
	elemPrefix = []byte("e/")
	dataPrefix = []byte("d/")
	attrPrefix = []byte("a/")
)

func keyObject(id string) []byte {
	k := make([]byte, 0, len(objPrefix)+len(id))
	k = append(k, objPrefix...)
	return append(k, id...)
}

// keyScoped builds prefix|id|sep followed by parts joined by sep.
func keyScoped(prefix []byte, id string, parts ...string) []byte {
	n := len(prefix) + len(id) + 1
	for _, p := range parts {
		n += len(p) + 1
	}
	k := make([]byte, 0, n)
	k = append(k, prefix...)
	k = append(k, id...)
	k = append(k, sep)
	for i, p := range parts {
		if i > 0 {
			k = append(k, sep)
		}
		k = append(k, p...)
	}
	return k
}

func keyElement(id, el string) []byte { return keyScoped(elemPrefix, id, el) }
func keyData(id, el string) []byte    { return keyScoped(dataPrefix, id, el) }

func keyAttr(id, el, name string) []byte { return keyScoped(attrPrefix, id, el, name) }

// attrScope is the prefix covering every attribute of one object or element.
func attrScope(id, el string) []byte {
	return append(keyScoped(attrPrefix, id, el), sep)
}
