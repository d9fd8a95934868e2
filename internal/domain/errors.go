package domain

import "errors"

// ErrDownloadInFlight indicates a start request arrived while a transfer is running
var ErrDownloadInFlight = errors.New("a download is already in progress")

// ErrNoConnectivity indicates the device has no usable network path
var ErrNoConnectivity = errors.New("no network connection")

// ErrCancelled indicates the in-flight transfer was cancelled before completion
var ErrCancelled = errors.New("download cancelled")
