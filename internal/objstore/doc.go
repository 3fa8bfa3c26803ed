// Package objstore is the raw digital-object store: objects, data elements
// and timestamped attributes kept in Pebble. It performs no transaction
// logging; storagelog wraps it for that.
package objstore
