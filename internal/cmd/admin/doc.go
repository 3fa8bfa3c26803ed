// Package admin provides offline maintenance commands for the transaction
// log. They open the log directory directly and must not run against a
// directory a server has open.
//
// Usage
//
//	dorepo txnlog stat --dir /var/lib/dorepo/txns
//	dorepo txnlog dump --dir /var/lib/dorepo/txns --from 100 --filter 'object_id == "x"'
//	dorepo txnlog migrate --dir /var/lib/dorepo/txns
package admin
