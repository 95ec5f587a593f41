// Package utils holds input validation shared by the HTTP surface.
package utils
