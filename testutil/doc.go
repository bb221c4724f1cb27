// Package testutil provides in-memory fakes and test data for exercising
// the event pipeline, publisher and device endpoints without a broker.
//
// MockTransport records every published message and can replay them to
// subscribers; failure injection covers publish errors and dropped
// connections. FailingSource and FailingStateStore drive the fallback and
// degradation paths.
package testutil
