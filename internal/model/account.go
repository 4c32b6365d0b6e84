package model

import "time"

// Account represents one provider credential set ("tenant") as stored in
// the `accounts` table.  Every fleet and SIM mirrored from the provider
// hangs off exactly one account.  The client secret is never stored in
// plain text; only the vault-encrypted record is persisted.
//
// Fields:
//  ID              – primary key identifier (UUID string).
//  Label           – human readable name from the tenant configuration.
//  ClientID        – the provider OAuth client id.  Globally unique.
//  EncryptedSecret – vault record (nonce:ciphertext:tag, hex encoded).
//  Scope           – optional OAuth scope requested for this tenant.
//  Audience        – optional OAuth audience requested for this tenant.
//  CreatedAt       – timestamp when the account row was first synced.
//  UpdatedAt       – timestamp of last sync update.
type Account struct {
	ID              string    // accounts.id
	Label           string    // accounts.label
	ClientID        string    // accounts.client_id
	EncryptedSecret string    // accounts.encrypted_secret
	Scope           string    // accounts.oauth_scope
	Audience        string    // accounts.oauth_audience
	CreatedAt       time.Time // accounts.created_at
	UpdatedAt       time.Time // accounts.updated_at
}
