// Package mem provides aligned on-heap byte allocation for pool slabs.
package mem
