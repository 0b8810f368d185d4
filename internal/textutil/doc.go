// Package textutil derives presentation-friendly display titles from
// recording filenames.
package textutil
