package auth

// Declaration defines the token contract for a cloud provider.
type Declaration struct {
	Provider  string
	TokenURL  string
	Scope     string
	StatePath string
}
