// internal/tests/api_test.go
package tests

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/utils"
)

func (suite *APITestSuite) TestHealthCheck() {
	w := suite.request(http.MethodGet, "/health", "", nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	var body map[string]interface{}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	suite.Equal("healthy", body["status"])
}

func (suite *APITestSuite) TestSubmitWithoutLicenceAwaitsOverride() {
	officer := suite.tokenFor(suite.officer)

	w := suite.submitOrder(officer, "SO-API-1")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	data := suite.data(w)
	result := data["result"].(map[string]interface{})
	suite.Equal(string(models.ValidationStatusFailed), result["status"])
	suite.Equal(true, result["requires_override"])
	id := data["transaction"].(map[string]interface{})["id"].(string)

	w = suite.request(http.MethodGet, "/api/v1/overrides/pending", officer, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Len(suite.data(w)["transactions"], 1)

	decision := map[string]interface{}{"justification": "Licence renewal confirmed by phone with CIBG"}
	w = suite.request(http.MethodPost, "/api/v1/overrides/"+id+"/approve", officer, decision)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/overrides/"+id+"/approve", suite.tokenFor(suite.responsible), decision)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.request(http.MethodGet, "/api/v1/transactions/"+id, officer, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	tx := suite.data(w)["transaction"].(map[string]interface{})
	suite.Equal(string(models.OverrideStatusApproved), tx["override_status"])
	suite.Equal(string(models.ValidationStatusApprovedWithOverride), tx["validation_status"])

	w = suite.request(http.MethodPost, "/api/v1/overrides/"+id+"/reject", suite.tokenFor(suite.responsible), decision)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (suite *APITestSuite) TestSubmitPassesWithRegisteredLicence() {
	officer := suite.tokenFor(suite.officer)
	suite.registerLicence(officer)

	w := suite.submitOrder(officer, "SO-API-2")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	result := suite.data(w)["result"].(map[string]interface{})
	suite.Equal(string(models.ValidationStatusPassed), result["status"])

	w = suite.request(http.MethodGet, "/api/v1/transactions?validation_status=passed", officer, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("1", w.Header().Get("X-Total-Count"))
}

func (suite *APITestSuite) TestSubmitRejectsInvalidAndDuplicateRequests() {
	officer := suite.tokenFor(suite.officer)

	w := suite.request(http.MethodPost, "/api/v1/transactions", officer, map[string]interface{}{
		"external_reference": "SO-API-3",
		"transaction_type":   "order",
	})
	suite.Equal(http.StatusBadRequest, w.Code)

	suite.Require().Equal(http.StatusCreated, suite.submitOrder(officer, "SO-API-3").Code)
	w = suite.submitOrder(officer, "SO-API-3")
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("INVALID_OPERATION", suite.errorCode(w))
}

func (suite *APITestSuite) TestSubmitRejectsUnconvertibleUnits() {
	officer := suite.tokenFor(suite.officer)

	for ref, unit := range map[string]string{"SO-API-LB": "lb", "SO-API-L": "l"} {
		w := suite.request(http.MethodPost, "/api/v1/transactions", officer, map[string]interface{}{
			"external_reference": ref,
			"transaction_type":   "order",
			"direction":          "outbound",
			"customer_id":        suite.customer.ID,
			"origin_country":     "NL",
			"transaction_date":   "2024-03-10T00:00:00Z",
			"lines": []map[string]interface{}{{
				"substance_code": "MORPH",
				"quantity":       "5",
				"unit":           unit,
			}},
		})
		suite.Equal(http.StatusBadRequest, w.Code, unit)
		suite.Equal("VALIDATION_FAILED", suite.errorCode(w), unit)
	}

	w := suite.request(http.MethodGet, "/api/v1/transactions", officer, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("0", w.Header().Get("X-Total-Count"))
}

func (suite *APITestSuite) TestFailedSubmitReportsPendingTransaction() {
	officer := suite.tokenFor(suite.officer)

	w := suite.request(http.MethodPost, "/api/v1/transactions", officer, map[string]interface{}{
		"external_reference": "SO-API-GHOST",
		"transaction_type":   "order",
		"direction":          "outbound",
		"customer_id":        uuid.New(),
		"origin_country":     "NL",
		"transaction_date":   "2024-03-10T00:00:00Z",
		"lines": []map[string]interface{}{{
			"substance_code": "MORPH",
			"quantity":       "1",
			"unit":           "g",
		}},
	})
	suite.Require().Equal(http.StatusNotFound, w.Code, w.Body.String())

	var response utils.APIResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	details, ok := response.Error.Details.(map[string]interface{})
	suite.Require().True(ok, w.Body.String())
	suite.Equal(string(models.ValidationStatusPending), details["validation_status"])
	id, ok := details["transaction_id"].(string)
	suite.Require().True(ok)

	w = suite.request(http.MethodGet, "/api/v1/transactions/"+id, officer, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal(string(models.ValidationStatusPending), suite.data(w)["transaction"].(map[string]interface{})["validation_status"])
}

func (suite *APITestSuite) TestUnknownTransaction() {
	officer := suite.tokenFor(suite.officer)

	w := suite.request(http.MethodGet, "/api/v1/transactions/6f1c9a52-0d5e-4a43-9a55-2b1f0c2b8d11", officer, nil)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal("NOT_FOUND", suite.errorCode(w))

	w = suite.request(http.MethodGet, "/api/v1/transactions/not-a-uuid", officer, nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *APITestSuite) TestReferenceDataWritesRequireRole() {
	body := map[string]interface{}{
		"code":           "FENT",
		"name":           "Fentanyl",
		"opium_act_list": "list_i",
		"base_unit":      "mg",
	}

	w := suite.request(http.MethodPost, "/api/v1/substances", suite.tokenFor(suite.officer), body)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.request(http.MethodPost, "/api/v1/substances", suite.tokenFor(suite.responsible), body)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = suite.request(http.MethodGet, "/api/v1/substances/FENT", suite.tokenFor(suite.officer), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("Fentanyl", suite.data(w)["substance"].(map[string]interface{})["name"])
}

func (suite *APITestSuite) TestSuspendedCustomerBlocksTransactions() {
	officer := suite.tokenFor(suite.officer)
	suite.registerLicence(officer)
	path := "/api/v1/customers/" + suite.customer.ID.String()

	w := suite.request(http.MethodPost, path+"/suspend", officer, map[string]interface{}{
		"reason": "Inspection found discrepancies",
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.submitOrder(officer, "SO-API-4")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	result := suite.data(w)["result"].(map[string]interface{})
	suite.Equal(string(models.ValidationStatusFailed), result["status"])
	suite.Equal(false, result["requires_override"])

	w = suite.request(http.MethodPost, path+"/reinstate", officer, nil)
	suite.Equal(http.StatusForbidden, w.Code)
	w = suite.request(http.MethodPost, path+"/reinstate", suite.tokenFor(suite.responsible), nil)
	suite.Equal(http.StatusOK, w.Code, w.Body.String())
}

func (suite *APITestSuite) TestImpactPreviewAsWorkbook() {
	officer := suite.tokenFor(suite.officer)
	licenceID := suite.registerLicence(officer)
	suite.Require().Equal(http.StatusCreated, suite.submitOrder(officer, "SO-API-5").Code)

	correction := map[string]interface{}{
		"issue_date": "2024-06-01T00:00:00Z",
		"reason":     "Issue date misread from certificate",
	}
	path := "/api/v1/licences/" + licenceID.String() + "/corrections/preview"

	w := suite.request(http.MethodPost, path, officer, correction)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	report := suite.data(w)["report"].(map[string]interface{})
	summary := report["summary"].(map[string]interface{})
	suite.Equal(float64(1), summary["critical"])

	w = suite.request(http.MethodPost, path, officer, correction,
		"Accept", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Contains(w.Header().Get("Content-Disposition"), "impact_OW-2020-001_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	suite.Require().NoError(err)
	defer f.Close()
	suite.Contains(f.GetSheetList(), "Summary")

	// Previews never store a correction.
	w = suite.request(http.MethodGet, "/api/v1/licences/"+licenceID.String()+"/corrections", officer, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Empty(suite.data(w)["corrections"])
}

func (suite *APITestSuite) TestPendingOverridesReport() {
	officer := suite.tokenFor(suite.officer)
	suite.Require().Equal(http.StatusCreated, suite.submitOrder(officer, "SO-API-6").Code)

	w := suite.request(http.MethodGet, "/api/v1/reports/pending-overrides.xlsx", officer, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	suite.Require().NoError(err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetList()[0])
	suite.Require().NoError(err)
	suite.Require().Len(rows, 2)
	suite.Equal("SO-API-6", rows[1][0])
}

func (suite *APITestSuite) TestAdminDashboardAndAuditLog() {
	officer := suite.tokenFor(suite.officer)
	w := suite.submitOrder(officer, "SO-API-7")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	id := suite.data(w)["transaction"].(map[string]interface{})["id"].(string)

	w = suite.request(http.MethodPost, "/api/v1/overrides/"+id+"/reject", suite.tokenFor(suite.responsible),
		map[string]interface{}{"justification": "No valid licence on file for this customer"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	admin := suite.tokenFor(suite.admin)
	w = suite.request(http.MethodGet, "/api/v1/admin/dashboard/stats", officer, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.request(http.MethodGet, "/api/v1/admin/dashboard/stats", admin, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	stats := suite.data(w)["stats"].(map[string]interface{})
	suite.Equal(float64(0), stats["pending_overrides"])

	w = suite.request(http.MethodGet, "/api/v1/admin/audit-logs?action="+models.AuditActionOverrideRejected+"&resource_id="+id, admin, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("1", w.Header().Get("X-Total-Count"))
}
