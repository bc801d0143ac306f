// Package unirio_sdk bootstraps a UNIRIO API client from environment
// variables. UNIRIO_RUNTIME_MODE selects between the real HTTP service and an
// in-process mock seeded from UNIRIO_MOCK_SEED, so applications can run
// unchanged on a developer machine without credentials for the university
// systems.
package unirio_sdk
