// internal/models/customer.go
package models

type Customer struct {
	BaseModel
	AccountNumber          string                 `json:"account_number" gorm:"size:50;uniqueIndex;not null"`
	Name                   string                 `json:"name" gorm:"size:255;not null"`
	Category               CustomerCategory       `json:"category" gorm:"type:varchar(30);not null;index"`
	CountryCode            string                 `json:"country_code" gorm:"size:2;not null"`
	ApprovalStatus         ApprovalStatus         `json:"approval_status" gorm:"type:varchar(30);default:'pending';index"`
	GdpQualificationStatus GdpQualificationStatus `json:"gdp_qualification_status" gorm:"type:varchar(30);default:'not_evaluated'"`
	IsSuspended            bool                   `json:"is_suspended" gorm:"default:false;index"`
	SuspensionReason       string                 `json:"suspension_reason,omitempty" gorm:"type:text"`

	// Relationships
	Transactions []Transaction `json:"transactions,omitempty" gorm:"foreignKey:CustomerID"`
}

// CanTransact is false for a suspended customer whatever its approval status.
func (c *Customer) CanTransact() bool {
	if c.IsSuspended {
		return false
	}
	return c.ApprovalStatus == ApprovalStatusApproved ||
		c.ApprovalStatus == ApprovalStatusConditionallyApproved
}

// RequiresGdpQualification reports whether the customer's category falls
// under Good Distribution Practice qualification.
func (c *Customer) RequiresGdpQualification() bool {
	switch c.Category {
	case CustomerCategoryWholesalerEU, CustomerCategoryWholesalerNonEU, CustomerCategoryManufacturer:
		return true
	}
	return false
}

func (c *Customer) IsGdpQualified() bool {
	return c.GdpQualificationStatus == GdpStatusApproved || c.GdpQualificationStatus == GdpStatusNotRequired
}
