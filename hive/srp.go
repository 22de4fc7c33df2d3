package hive

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/lumenhq/lumen/internal/util"
)

// Cognito's SRP flavor over the RFC 3526 3072-bit MODP group, g = 2. The
// derived-key info string and the timestamp format are fixed by the
// provider's protocol.
const srpNHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
	"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
	"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
	"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
	"43DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

const derivedKeyInfo = "Caldera Derived Key"

// srpClient holds the ephemeral client half of one SRP handshake.
type srpClient struct {
	n, g, k *big.Int
	a, bigA *big.Int
}

func newSRPClient() (*srpClient, error) {
	n, ok := new(big.Int).SetString(srpNHex, 16)
	if !ok {
		return nil, fmt.Errorf("parsing SRP group modulus")
	}
	g := big.NewInt(2)
	k := hexToBig(hexHash("00" + srpNHex + "0" + g.Text(16)))

	for {
		raw, err := util.RandomBytes(128)
		if err != nil {
			return nil, fmt.Errorf("generating SRP ephemeral: %w", err)
		}
		a := new(big.Int).Mod(new(big.Int).SetBytes(raw), n)
		bigA := new(big.Int).Exp(g, a, n)
		// A ≡ 0 mod N is forbidden by the protocol.
		if new(big.Int).Mod(bigA, n).Sign() != 0 {
			return &srpClient{n: n, g: g, k: k, a: a, bigA: bigA}, nil
		}
	}
}

// A returns the public ephemeral as uppercase-free hex, as the provider
// expects it in SRP_A.
func (c *srpClient) A() string {
	return c.bigA.Text(16)
}

// passwordClaim computes the PASSWORD_CLAIM_SIGNATURE for a
// PASSWORD_VERIFIER (or DEVICE_PASSWORD_VERIFIER) challenge. groupName is
// the pool name for user auth or the device group key for device auth;
// userID is the SRP user id or the device key respectively.
func (c *srpClient) passwordClaim(groupName, userID, password, saltHex, bHex, secretBlockB64 string, ts time.Time) (string, error) {
	b := hexToBig(bHex)
	if new(big.Int).Mod(b, c.n).Sign() == 0 {
		return "", fmt.Errorf("server SRP_B must not be zero mod N")
	}

	key, err := c.sessionKey(groupName, userID, password, saltHex, b)
	if err != nil {
		return "", err
	}

	secretBlock, err := base64.StdEncoding.DecodeString(secretBlockB64)
	if err != nil {
		return "", fmt.Errorf("decoding secret block: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(groupName))
	mac.Write([]byte(userID))
	mac.Write(secretBlock)
	mac.Write([]byte(srpTimestamp(ts)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// sessionKey runs the client-side SRP key agreement and derives the 16-byte
// HMAC key via HKDF-SHA256.
func (c *srpClient) sessionKey(groupName, userID, password, saltHex string, b *big.Int) ([]byte, error) {
	u := hexToBig(hexHash(padHex(c.bigA) + padHex(b)))
	if u.Sign() == 0 {
		return nil, fmt.Errorf("SRP u value must not be zero")
	}

	idHash := sha256.Sum256([]byte(groupName + userID + ":" + util.Normalize(password)))
	x := hexToBig(hexHash(padHexStr(saltHex) + hex.EncodeToString(idHash[:])))

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(c.g, x, c.n)
	base := new(big.Int).Sub(b, new(big.Int).Mul(c.k, gx))
	base.Mod(base, c.n)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	s := new(big.Int).Exp(base, exp, c.n)

	ikm, err := hex.DecodeString(padHex(s))
	if err != nil {
		return nil, fmt.Errorf("decoding shared secret: %w", err)
	}
	salt, err := hex.DecodeString(padHex(u))
	if err != nil {
		return nil, fmt.Errorf("decoding HKDF salt: %w", err)
	}

	key := make([]byte, 16)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(derivedKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}
	return key, nil
}

// deviceVerifier produces the salt and password verifier registered with
// the provider when confirming a new trusted device.
func deviceVerifier(deviceGroupKey, deviceKey, devicePassword string) (saltB64, verifierB64 string, err error) {
	n, _ := new(big.Int).SetString(srpNHex, 16)
	g := big.NewInt(2)

	fullHash := sha256.Sum256([]byte(deviceGroupKey + deviceKey + ":" + devicePassword))

	saltBytes, err := util.RandomBytes(16)
	if err != nil {
		return "", "", fmt.Errorf("generating verifier salt: %w", err)
	}
	saltHex := padHexStr(hex.EncodeToString(saltBytes))

	x := hexToBig(hexHash(saltHex + hex.EncodeToString(fullHash[:])))
	verifier := new(big.Int).Exp(g, x, n)

	saltRaw, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", "", err
	}
	verifierRaw, err := hex.DecodeString(padHex(verifier))
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(saltRaw),
		base64.StdEncoding.EncodeToString(verifierRaw), nil
}

// randomDevicePassword generates the secret half of a device credential
// bundle: 40 random bytes, base64.
func randomDevicePassword() (string, error) {
	raw, err := util.RandomBytes(40)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// srpTimestamp formats a timestamp the way the provider's claim signature
// expects: UTC, English weekday/month, non-padded day.
func srpTimestamp(t time.Time) string {
	return t.UTC().Format("Mon Jan 2 15:04:05 UTC 2006")
}

// hexHash returns the hex SHA-256 of the byte decoding of a hex string.
func hexHash(hexStr string) string {
	if len(hexStr)%2 == 1 {
		hexStr = "0" + hexStr
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		// Inputs are internally produced hex; a failure here is a bug.
		panic(fmt.Sprintf("hexHash: invalid hex input: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func hexToBig(hexStr string) *big.Int {
	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		panic(fmt.Sprintf("hexToBig: invalid hex input %q", hexStr))
	}
	return n
}

// padHex renders a big.Int as hex with the provider's sign-padding rules:
// even length, and a leading "00" when the top nibble would set the sign
// bit in a two's-complement reading.
func padHex(n *big.Int) string {
	return padHexStr(n.Text(16))
}

func padHexStr(hexStr string) string {
	if len(hexStr)%2 == 1 {
		hexStr = "0" + hexStr
	} else if hexStr != "" && strings.ContainsRune("89abcdefABCDEF", rune(hexStr[0])) {
		hexStr = "00" + hexStr
	}
	return hexStr
}
