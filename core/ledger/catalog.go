package ledger

// Tier names a purchasable credit pack.
type Tier string

const (
	TierSmall   Tier = "small"
	TierMedium  Tier = "medium"
	TierLarge   Tier = "large"
	TierUnknown Tier = "unknown"
)

var tierCredits = map[Tier]int{
	TierSmall:  10,
	TierMedium: 25,
	TierLarge:  50,
}

// Catalog maps billing product ids to credit packs.
type Catalog struct {
	products map[string]Tier
}

// NewCatalog builds the catalog from the provider's product ids for each tier.
func NewCatalog(smallID, mediumID, largeID string) Catalog {
	return Catalog{products: map[string]Tier{
		smallID:  TierSmall,
		mediumID: TierMedium,
		largeID:  TierLarge,
	}}
}

// Lookup returns the tier and credit grant for productID. Unknown products grant 0.
func (c Catalog) Lookup(productID string) (Tier, int) {
	tier, ok := c.products[productID]
	if !ok || productID == "" {
		return TierUnknown, 0
	}
	return tier, tierCredits[tier]
}
