// Package dicom binds DICOM pipelines to Go functions.
package dicom
