// Package notebookapi is the REST surface of the content domain. Every route
// runs behind the auth gate; permission decisions themselves live in the
// notebook service and the access resolver, not here.
package notebookapi
