// Package resilience provides the retry loop, delay policies and circuit
// breaker used to talk to flaky dependencies.
//
// A RetryConfig is built once and reused:
//
//	cfg := resilience.MustRetryConfig(
//		resilience.WithLimit(5),
//		resilience.WithDelay(resilience.MustDelay(resilience.DelayExponential(time.Second, 2, 30*time.Second))),
//		resilience.WithErrors(storeapi.ErrConnection),
//	)
//	snap, err := resilience.Do(cfg, "fetch snap", fetch)
//
// Errors returned by Retry are exactly the ones the operation produced.
package resilience
