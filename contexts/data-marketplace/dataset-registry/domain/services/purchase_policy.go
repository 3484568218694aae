package services

import (
	"fmt"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
)

// EvaluatePurchase checks a purchase against the dataset without side effects.
// Open datasets are not purchasable, a principal that already has access is
// never charged again, and the payment must equal the price exactly.
func EvaluatePurchase(
	dataset entities.Dataset,
	buyer entities.Principal,
	payment entities.Amount,
	grants GrantLookup,
) error {
	if !dataset.Tier.RequiresPurchase() {
		return &domainerrors.ValidationError{
			Field:  "dataset_id",
			Reason: fmt.Sprintf("%d is Open", dataset.DatasetID),
			Err:    domainerrors.ErrOpenDatasetNotPurchasable,
		}
	}
	if buyer == dataset.Owner || grants.HasGrant(dataset.DatasetID, buyer) {
		return fmt.Errorf("%w: dataset %d for %s", domainerrors.ErrAlreadyGranted, dataset.DatasetID, buyer)
	}
	if !payment.Equal(dataset.Price) {
		return &domainerrors.PaymentError{
			DatasetID: dataset.DatasetID,
			Expected:  dataset.Price.String(),
			Got:       payment.String(),
		}
	}
	return nil
}
