package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/certtrack/certificate-service/internal/models"
)

func TestExportCertificates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	env.createAccount(t, models.RoleFaculty, "faculty")

	env.review(t, env.submit(t, student.ID, intPtr(60)), models.CertificateAccepted)
	env.submit(t, student.ID, nil)
	env.submit(t, student.ID, nil)

	data, err := env.manager.Export().ExportCertificates(ctx, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{CertificatesSheet, WorkloadSheet}, f.GetSheetList())

	rows, err := f.GetRows(CertificatesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Title", rows[0][1])
	assert.Equal(t, "Cloud Practitioner", rows[1][1])
	assert.Equal(t, "student", rows[1][3])

	workload, err := f.GetRows(WorkloadSheet)
	require.NoError(t, err)
	require.Len(t, workload, 2)
	assert.Equal(t, "faculty", workload[1][1])
	assert.Equal(t, "2", workload[1][4])
	assert.Equal(t, "1", workload[1][5])
}

func TestExportFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	env.createAccount(t, models.RoleFaculty, "faculty")

	env.review(t, env.submit(t, student.ID, nil), models.CertificateAccepted)
	env.submit(t, student.ID, nil)

	data, err := env.manager.Export().ExportCertificates(ctx, &CertificateListRequest{Status: "accepted"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(CertificatesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "accepted", rows[1][6])

	_, err = env.manager.Export().ExportCertificates(ctx, &CertificateListRequest{Status: "lost"})
	assert.ErrorIs(t, err, ErrValidationFailed)
}
