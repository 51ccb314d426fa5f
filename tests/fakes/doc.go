// Package fakes provides test doubles for the cloud SDK clients objsign
// talks to.
//
// Fakes are manually implemented (not generated) and hold their state in
// exported maps so tests can seed and inspect it directly.
//
// Usage:
//
//	ssmFake := fakes.NewFakeSSMClient()
//	ssmFake.PublishNamespace("Infra", "arn:...", "ns-123", "elsa.internal")
//	resolver, _ := directory.NewSSMResolver(ctx, nil, directory.WithSSMClient(ssmFake))
//	ns, err := resolver.ResolveNamespace(ctx, "Infra")
package fakes
