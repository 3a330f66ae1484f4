// Retry is used where the service reaches outside the process: connecting the
// NATS tap and publishing to it.
//
//	nc, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
//	    return nats.Connect(url)
//	})
//
// Errors wrapped with NonRetryable end the loop immediately. All operations
// respect context cancellation, both while fn runs and during backoff.
package retry
