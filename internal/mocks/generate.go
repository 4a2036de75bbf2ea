// Package mocks provides mock implementations of the console's ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	client := mocks.NewMockIdentityClient(ctrl)
//	client.EXPECT().Initialize(gomock.Any(), gomock.Any()).Return(ports.InitResult{Authenticated: true}, nil)
package mocks

// Generate mock for IdentityClient interface from internal/ports package.
// This creates MockIdentityClient with methods for all IdentityClient interface methods:
// Initialize, HandleCallback, Login, Logout, CurrentToken, ForceRefresh, Identity, OnTokenExpired, Close
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_client_mock.go github.com/target/members-console/internal/ports IdentityClient

// Generate mocks for the resource API ports used by the member service.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=member_repository_mock.go github.com/target/members-console/internal/ports MemberRepository,RegistrationRepository
