package sqlinline

const jobColumns = `id::text, owner_id, kind, prompt, input_asset_refs, coalesce(template_id, ''), params, locale,
    status, debited_amount, refunded, recoverable, coalesce(result_asset_ref, ''), coalesce(result_url, ''),
    coalesce(error_message, ''), coalesce(prediction_id, ''), attempts, created_at, updated_at`

const QInsertJob = `--sql 7aef3e6f-16b7-4431-ae45-bbac542c9759
insert into generation_jobs (
    id, owner_id, kind, prompt, input_asset_refs, template_id, params, locale,
    status, debited_amount, refunded, recoverable, attempts, created_at, updated_at
)
values (
    $1::uuid, $2::text, $3::text, $4::text, $5::jsonb, nullif($6::text, ''), $7::jsonb, $8::text,
    'queued', $9::bigint, false, false, 0, now(), now()
)
returning created_at, updated_at;
`

const QSelectJob = `--sql f7b0f125-76ea-4713-92a8-9f4368068877
select ` + jobColumns + `
from generation_jobs
where id = $1::uuid
limit 1;
`

const QListJobsByOwner = `--sql 0f38684b-644d-4702-87e3-be251bdf42fd
select ` + jobColumns + `
from generation_jobs
where owner_id = $1::text
order by created_at desc
limit $2::int;
`

// QMarkJobProcessing only matches a queued row; zero rows affected means
// another worker claimed the job first.
const QMarkJobProcessing = `--sql b3c820dd-301c-4715-a942-5ff488e979ca
update generation_jobs
set status = 'processing', updated_at = now()
where id = $1::uuid and status = 'queued';
`

const QMarkJobDone = `--sql 57275167-334c-4200-8e6a-583adfca55e0
update generation_jobs
set status = 'done',
    result_asset_ref = $2::text,
    result_url = $3::text,
    prediction_id = nullif($4::text, ''),
    attempts = $5::int,
    updated_at = now()
where id = $1::uuid and status = 'processing'
returning owner_id;
`

const QFailJob = `--sql f7de526e-555c-41a7-be68-bc99e2e733c6
update generation_jobs
set status = 'error',
    error_message = $2::text,
    recoverable = $3::boolean,
    prediction_id = coalesce(nullif($4::text, ''), prediction_id),
    attempts = greatest(attempts, $5::int),
    refunded = true,
    updated_at = now()
where id = $1::uuid
  and status in ('queued', 'processing')
  and refunded = false
returning owner_id, debited_amount;
`
